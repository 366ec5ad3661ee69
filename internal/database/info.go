package database

import (
	"strings"

	"github.com/spf13/cast"
)

// Info identifies a database to connect to. Empty fields are left out of
// the generated command lines.
type Info struct {
	Engine   string
	Name     string
	User     string
	Password string
	Host     string
	Port     string
}

// InfoFromMap builds an Info from loosely typed settings. Keys are matched
// case-insensitively, unknown keys are ignored and non-string values are
// stringified, so a YAML port of 5432 becomes "5432".
func InfoFromMap(m map[string]any) Info {
	var info Info
	for k, v := range m {
		s := toString(v)
		switch strings.ToLower(k) {
		case "engine":
			info.Engine = s
		case "name":
			info.Name = s
		case "user":
			info.User = s
		case "password":
			info.Password = s
		case "host":
			info.Host = s
		case "port":
			info.Port = s
		}
	}
	return info
}

// AsMap returns the fields keyed by their lowercase names, the form
// command templates are filled out with.
func (i Info) AsMap() map[string]string {
	return map[string]string{
		"engine":   i.Engine,
		"name":     i.Name,
		"user":     i.User,
		"password": i.Password,
		"host":     i.Host,
		"port":     i.Port,
	}
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}
