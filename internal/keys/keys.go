// Package keys encodes ledger storage keys.
//
// Debt records live under "debts/<user>/<unix-nanos>" where the timestamp is
// zero padded to 20 digits, so byte order equals chronological order within a
// user and every user's records form one contiguous range. Registered users
// live under "users/<user>".
package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DebtsNamespace = "debts/"
	UsersNamespace = "users/"

	separator   = '/'
	suffixWidth = 20 // digits in math.MaxInt64
	maxUserLen  = 64
)

var (
	ErrInvalidUser = errors.New("invalid user name")
	ErrInvalidKey  = errors.New("invalid ledger key")
	ErrInvalidTime = errors.New("timestamp before unix epoch")
)

// ValidateUser checks that name can be embedded in a key without its prefix
// containing any other user's prefix.
func ValidateUser(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUser)
	}
	if len(name) > maxUserLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidUser, maxUserLen)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidUser)
	}
	for _, r := range name {
		if r == separator {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidUser, name, separator)
		}
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidUser, name)
		}
	}
	return nil
}

// Encode returns the key of user's record at t. t must not be before the
// unix epoch.
func Encode(user string, t time.Time) ([]byte, error) {
	if err := ValidateUser(user); err != nil {
		return nil, err
	}
	ns := t.UnixNano()
	if ns < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTime, t)
	}
	key := make([]byte, 0, len(DebtsNamespace)+len(user)+1+suffixWidth)
	key = append(key, DebtsNamespace...)
	key = append(key, user...)
	key = append(key, separator)
	key = append(key, fmt.Sprintf("%0*d", suffixWidth, ns)...)
	return key, nil
}

// Decode splits a debt key into its user and timestamp.
func Decode(key []byte) (string, time.Time, error) {
	s := string(key)
	rest, ok := strings.CutPrefix(s, DebtsNamespace)
	if !ok {
		return "", time.Time{}, fmt.Errorf("%w: %q lacks %q", ErrInvalidKey, s, DebtsNamespace)
	}
	i := strings.LastIndexByte(rest, separator)
	if i < 0 {
		return "", time.Time{}, fmt.Errorf("%w: %q has no timestamp", ErrInvalidKey, s)
	}
	user, suffix := rest[:i], rest[i+1:]
	if err := ValidateUser(user); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, s, err)
	}
	if len(suffix) != suffixWidth {
		return "", time.Time{}, fmt.Errorf("%w: %q timestamp is not %d digits", ErrInvalidKey, s, suffixWidth)
	}
	ns, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || ns < 0 {
		return "", time.Time{}, fmt.Errorf("%w: %q bad timestamp", ErrInvalidKey, s)
	}
	return user, time.Unix(0, ns).UTC(), nil
}

// UserPrefix returns "debts/<user>/".
func UserPrefix(user string) []byte {
	return []byte(DebtsNamespace + user + string(separator))
}

// UserRange returns the half-open range [start, end) holding exactly user's
// records. end is the prefix with its trailing '/' replaced by '0', the next
// byte value, so it sorts after every suffix of the prefix and before any
// key outside it.
func UserRange(user string) (start, end []byte) {
	return prefixRange(UserPrefix(user))
}

// DebtsRange covers every debt record of every user.
func DebtsRange() (start, end []byte) {
	return prefixRange([]byte(DebtsNamespace))
}

// UserKey returns the registry key of user.
func UserKey(user string) []byte {
	return []byte(UsersNamespace + user)
}

// UsersRange covers the whole user registry.
func UsersRange() (start, end []byte) {
	return prefixRange([]byte(UsersNamespace))
}

// UserFromKey returns the user name of a registry key.
func UserFromKey(key []byte) (string, error) {
	user, ok := strings.CutPrefix(string(key), UsersNamespace)
	if !ok {
		return "", fmt.Errorf("%w: %q lacks %q", ErrInvalidKey, key, UsersNamespace)
	}
	if err := ValidateUser(user); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	return user, nil
}

// prefixRange expects prefix to end in the separator.
func prefixRange(prefix []byte) (start, end []byte) {
	start = append([]byte(nil), prefix...)
	end = append([]byte(nil), prefix...)
	end[len(end)-1]++
	return start, end
}
