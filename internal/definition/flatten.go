package definition

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/smazurov/liveactivity/internal/config"
)

// Settings flattens the definition's activity wide config and every
// component's config into one provider map. Component keys are placed
// under the component's prefix, so
//
//	[components.config]
//	restart = { policy = "limited" }
//
// of a component named "router" becomes "router.restart.policy".
func (d *Definition) Settings() config.Map {
	out := config.Map{}
	flatten("", d.Config, out)
	for _, c := range d.Components {
		flatten(c.KeyPrefix(), c.Config, out)
	}
	return out
}

func flatten(prefix string, values map[string]any, out config.Map) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := values[k].(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = scalar(values[k])
	}
}

// scalar renders a decoded value as a provider string. Lists become a
// space separated, quoted argument string.
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, quote(scalar(item)))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(t)
	}
}

func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n\"'\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
