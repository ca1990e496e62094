package rename

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"file-renamer/errors"

	"github.com/go-playground/validator/v10"
)

// ReservedChars can never appear in a requested filename.
const ReservedChars = `<>:"/\|?*`

type Renamer struct {
	validate  *validator.Validate
	log       *slog.Logger
	maxLength int
}

func NewRenamer(log *slog.Logger, maxLength int) *Renamer {
	return &Renamer{validate: validator.New(), log: log, maxLength: maxLength}
}

// Validate rejects names that cannot be used as-is; it never rewrites them.
func (r *Renamer) Validate(name string) error {
	if err := r.validate.Var(name, fmt.Sprintf("required,max=%d", r.maxLength)); err != nil {
		if name == "" {
			return fmt.Errorf("%w: name is empty", errors.ErrInvalidFilename)
		}
		return fmt.Errorf("%w: longer than %d characters", errors.ErrInvalidFilename, r.maxLength)
	}
	if strings.ContainsAny(name, ReservedChars) {
		return fmt.Errorf("%w: contains one of %s", errors.ErrInvalidFilename, ReservedChars)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: contains control characters", errors.ErrInvalidFilename)
	}
	if strings.Trim(name, ". ") == "" {
		return fmt.Errorf("%w: only dots", errors.ErrInvalidFilename)
	}
	return nil
}

// TargetPath places name next to local and keeps local's extension.
// A name already ending with that extension is not given a second one.
func TargetPath(local, name string) string {
	ext := filepath.Ext(local)
	if ext != "" && strings.EqualFold(filepath.Ext(name), ext) {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return filepath.Join(filepath.Dir(local), name+ext)
}

// Rename moves local to TargetPath(local, name).
// It fails with ErrNotFound when local is gone and ErrCollision when the
// target exists; any other filesystem error is ErrRenameIO.
func (r *Renamer) Rename(local, name string) (string, error) {
	if err := r.Validate(name); err != nil {
		return "", err
	}
	target := TargetPath(local, name)

	if _, err := os.Stat(local); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", local, errors.ErrNotFound)
		}
		return "", fmt.Errorf("%w: %v", errors.ErrRenameIO, err)
	}
	if target == filepath.Clean(local) {
		return target, nil
	}
	if _, err := os.Lstat(target); err == nil {
		return "", fmt.Errorf("%s: %w", target, errors.ErrCollision)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %v", errors.ErrRenameIO, err)
	}

	if err := os.Rename(local, target); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrRenameIO, err)
	}
	r.log.Debug("File renamed", "from", filepath.Base(local), "to", filepath.Base(target))
	return target, nil
}

// SanitizeDeclared makes a transport-declared filename safe for the local
// temp path. Only used for names the user did not type.
func SanitizeDeclared(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(ReservedChars, r) || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
	if strings.Trim(name, ". ") == "" {
		return "file"
	}
	return name
}
