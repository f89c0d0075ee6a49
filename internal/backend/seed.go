package backend

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SeedUsersFile is read from the seed directory at startup
const SeedUsersFile = "seed_users.txt"

// UserRegistrar adds a user to the ledger's registry
type UserRegistrar interface {
	AddUser(ctx context.Context, name string) error
}

// SeedUsers registers every user listed in dir/seed_users.txt and returns
// how many names were read. A missing file seeds nothing.
func SeedUsers(ctx context.Context, reg UserRegistrar, dir string) (int, error) {
	names := readLines(filepath.Join(dir, SeedUsersFile))
	for _, name := range names {
		if err := reg.AddUser(ctx, name); err != nil {
			return 0, fmt.Errorf("seed user %q: %w", name, err)
		}
	}
	return len(names), nil
}

// readLines returns the non-blank lines of path that are not comments,
// trimmed and without duplicates.
func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe drops repeated values and keeps the input order
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
