package postgis

import (
	"os"
	"strings"
)

type connParam struct {
	key, value string
}

// splitParams parses libpq key=value params. Values can be quoted with
// single quotes, with backslash escapes inside.
func splitParams(params string) []connParam {
	var result []connParam
	s := params
	for {
		s = strings.TrimLeft(s, " \t\n\r")
		if s == "" {
			return result
		}
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return append(result, connParam{key: strings.TrimSpace(s)})
		}
		p := connParam{key: strings.TrimSpace(s[:eq])}
		s = strings.TrimLeft(s[eq+1:], " \t")

		var v strings.Builder
		if strings.HasPrefix(s, "'") {
			i := 1
			for ; i < len(s) && s[i] != '\''; i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				v.WriteByte(s[i])
			}
			s = s[min(i+1, len(s)):]
		} else {
			i := 0
			for ; i < len(s) && !strings.ContainsRune(" \t\n\r", rune(s[i])); i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				v.WriteByte(s[i])
			}
			s = s[i:]
		}
		p.value = v.String()
		result = append(result, p)
	}
}

func (p connParam) String() string {
	if p.value != "" && !strings.ContainsAny(p.value, " \t\n\r'\\") {
		return p.key + "=" + p.value
	}
	escaper := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return p.key + "='" + escaper.Replace(p.value) + "'"
}

// disableDefaultSslOnLocalhost adds sslmode=disable to params
// when host is localhost/127.0.0.1 and the sslmode param and
// PGSSLMODE environment are both not set.
func disableDefaultSslOnLocalhost(params string) string {
	isLocalHost := false
	for _, p := range splitParams(params) {
		if p.key == "sslmode" {
			return params
		}
		if p.key == "host" && (p.value == "localhost" || p.value == "127.0.0.1") {
			isLocalHost = true
		}
	}

	if !isLocalHost {
		return params
	}

	if _, ok := os.LookupEnv("PGSSLMODE"); ok {
		return params
	}

	return params + " sslmode=disable"
}

// ogrConnInfo returns libpq params as GDAL PG: datasource. The password
// is left out, see passwordEnv.
func ogrConnInfo(params string) string {
	var parts []string
	for _, p := range splitParams(params) {
		if p.key != "password" {
			parts = append(parts, p.String())
		}
	}
	return "PG:" + strings.Join(parts, " ")
}

// passwordEnv returns the password of params as PGPASSWORD environment
// entry for external processes.
func passwordEnv(params string) []string {
	for _, p := range splitParams(params) {
		if p.key == "password" {
			return []string{"PGPASSWORD=" + p.value}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
