package credential

import "os"

// DefaultEnvVar is the environment variable holding a forced password.
const DefaultEnvVar = "CFG_PASSWORD"

// Env reads the password from an environment variable. Passwords from the
// environment are always Forced.
type Env struct {
	Var    string
	lookup func(string) (string, bool)
}

func (e Env) Name() string { return "env" }

// Password implements Source.
func (e Env) Password(Request) (*Password, error) {
	name := e.Var
	if name == "" {
		name = DefaultEnvVar
	}
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, ok := lookup(name)
	if !ok || value == "" {
		return nil, ErrUnavailable
	}
	return NewPassword(value, e.Name(), true)
}
