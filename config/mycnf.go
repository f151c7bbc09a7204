package config

import (
	"gopkg.in/ini.v1"

	"github.com/sdzerobot/sdzerobot/errors"
)

// myCnfOptions accepts what mysql itself accepts in an option file: bare
// flags such as "quick" and "!include" directives, which are skipped
var myCnfOptions = ini.LoadOptions{
	Insensitive:             true,
	AllowBooleanKeys:        true,
	SkipUnrecognizableLines: true,
}

// ReadMyCnf reads the [client] user and password from a MySQL option file,
// the format Toolforge uses for replica.my.cnf
func ReadMyCnf(path string) (user, password string, err error) {
	f, err := ini.LoadSources(myCnfOptions, ExpandHome(path))
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to read %s", path)
	}

	client := f.Section("client")
	user = client.Key("user").String()
	password = client.Key("password").String()
	if user == "" {
		return "", "", errors.WithHint(
			errors.Newf("%s has no [client] user", path),
			"Toolforge tools get this file in the tool's home directory")
	}
	return user, password, nil
}

// ReplicaCredentials returns the configured credentials, falling back to
// the option file when no user is set
func (c *Config) ReplicaCredentials() (user, password string, err error) {
	if c.Replica.User != "" {
		return c.Replica.User, c.Replica.Password, nil
	}
	return ReadMyCnf(c.Replica.MyCnfPath)
}
