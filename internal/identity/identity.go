package identity

import (
	"os"
	"os/user"
	"strconv"
)

const (
	// rootUID is the superuser ID on Unix.
	rootUID = 0
	// sudoUserVariable names the account that invoked sudo.
	sudoUserVariable = "SUDO_USER"
)

// User is a resolved account.
type User struct {
	// Username is the login name.
	Username string
	// UID is the numeric user ID.
	UID uint32
	// GID is the primary group ID.
	GID uint32
	// Groups are the supplementary group IDs, including GID.
	Groups []uint32
	// HomeDir is the home directory used to locate the user's toolchain.
	HomeDir string
}

// IsRoot reports whether the account is the superuser.
func (u User) IsRoot() bool {
	return u.UID == rootUID
}

// Identity is derived once per run and never changes afterwards.
type Identity struct {
	// Invoking is the account build steps run as.
	Invoking User
	// Elevated reports whether the process has superuser effective identity.
	Elevated bool
}

// DropsPrivileges reports whether commands must switch to the invoking user.
func (i *Identity) DropsPrivileges() bool {
	return i.Elevated && !i.Invoking.IsRoot()
}

// Environment is the process context identity resolution reads from.
type Environment struct {
	// Getenv reads an environment variable.
	Getenv func(key string) string
	// Geteuid returns the effective user ID.
	Geteuid func() int
	// Current returns the account of the real user ID.
	Current func() (*user.User, error)
	// Lookup finds an account by name.
	Lookup func(username string) (*user.User, error)
	// GroupIDs lists the group IDs of an account.
	GroupIDs func(u *user.User) ([]string, error)
}

// SystemEnvironment reads from the running process.
func SystemEnvironment() Environment {
	return Environment{
		Getenv:  os.Getenv,
		Geteuid: os.Geteuid,
		Current: user.Current,
		Lookup:  user.Lookup,
		GroupIDs: func(u *user.User) ([]string, error) {
			return u.GroupIds()
		},
	}
}

// Resolve determines the invoking user. Under sudo this is SUDO_USER when it
// names a known non-root account, otherwise the current user. Resolution
// always succeeds; when account databases are unreadable it falls back to
// $USER, $HOME and the effective UID.
func Resolve(env Environment) *Identity {
	euid := env.Geteuid()
	elevated := euid == rootUID

	if elevated {
		if name := env.Getenv(sudoUserVariable); name != "" {
			if account, err := env.Lookup(name); err == nil {
				if resolved, ok := fromAccount(env, account); ok && !resolved.IsRoot() {
					return &Identity{Invoking: resolved, Elevated: true}
				}
			}
		}
	}

	if account, err := env.Current(); err == nil {
		if resolved, ok := fromAccount(env, account); ok {
			return &Identity{Invoking: resolved, Elevated: elevated}
		}
	}

	uid := uint32(euid) //nolint:gosec // Effective UIDs are never negative.

	return &Identity{
		Invoking: User{
			Username: env.Getenv("USER"),
			UID:      uid,
			GID:      uid,
			Groups:   []uint32{uid},
			HomeDir:  env.Getenv("HOME"),
		},
		Elevated: elevated,
	}
}

// fromAccount converts an os/user account into a User.
func fromAccount(env Environment, account *user.User) (User, bool) {
	uid, err := strconv.ParseUint(account.Uid, 10, 32)
	if err != nil {
		return User{}, false
	}

	gid, err := strconv.ParseUint(account.Gid, 10, 32)
	if err != nil {
		return User{}, false
	}

	resolved := User{
		Username: account.Username,
		UID:      uint32(uid),
		GID:      uint32(gid),
		Groups:   []uint32{uint32(gid)},
		HomeDir:  account.HomeDir,
	}

	if env.GroupIDs == nil {
		return resolved, true
	}

	groupIDs, err := env.GroupIDs(account)
	if err != nil {
		return resolved, true
	}

	for _, raw := range groupIDs {
		group, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || uint32(group) == resolved.GID {
			continue
		}

		resolved.Groups = append(resolved.Groups, uint32(group))
	}

	return resolved, true
}
