package reactivation

import (
	"crypto/rand"
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"
)

// Character classes for generated passwords. Look-alike characters
// (0/O, 1/l/I) are left out.
const (
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*-_=+?"

	minPasswordLength = 8
)

// GeneratePassword returns a random password of length characters with at
// least one upper case letter, lower case letter, digit and symbol.
func GeneratePassword(length int) (string, error) {
	if length < minPasswordLength {
		return "", fmt.Errorf("password length %d is below the minimum of %d", length, minPasswordLength)
	}
	classes := []string{upperChars, lowerChars, digitChars, symbolChars}
	all := strings.Join(classes, "")

	out := make([]byte, 0, length)
	for _, class := range classes {
		c, err := pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	// Fisher-Yates so the guaranteed characters are not always first.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := randInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random source failed: %w", err)
	}
	return int(v.Int64()), nil
}

// PasswordPolicy decides the password each record receives.
type PasswordPolicy struct {
	// Fixed, when set, is used for every user; otherwise one is generated.
	Fixed       string
	Length      int
	ForceChange bool
}

// Next returns the password for the next user.
func (p PasswordPolicy) Next() (string, error) {
	if p.Fixed != "" {
		return p.Fixed, nil
	}
	return GeneratePassword(p.Length)
}

// PasswordFile records the passwords set during a run as CSV. The file is
// created with mode 0600 and appended to.
type PasswordFile struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	path string
}

// OpenPasswordFile opens path for appending, writing a header to a new file.
func OpenPasswordFile(path string) (*PasswordFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open password file: %w", err)
	}
	// Tighten an existing file that was created with a looser mode.
	if err := f.Chmod(0o600); err != nil && !isNotSupported(err) {
		f.Close()
		return nil, fmt.Errorf("failed to restrict password file: %w", err)
	}
	pf := &PasswordFile{file: f, w: csv.NewWriter(f), path: path}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := pf.write([]string{"Timestamp", "Email", "Password", "ForceChange"}); err != nil {
			f.Close()
			return nil, err
		}
	}
	return pf, nil
}

func (p *PasswordFile) Path() string { return p.path }

// Add appends one row and flushes it to disk.
func (p *PasswordFile) Add(email, password string, forceChange bool) error {
	return p.write([]string{time.Now().Format(time.RFC3339), email, password, fmt.Sprintf("%t", forceChange)})
}

func (p *PasswordFile) write(row []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return fmt.Errorf("password file is closed")
	}
	if err := p.w.Write(row); err != nil {
		return err
	}
	p.w.Flush()
	return p.w.Error()
}

func (p *PasswordFile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	p.w.Flush()
	err := p.file.Close()
	p.file = nil
	return err
}

func isNotSupported(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "not supported")
}
