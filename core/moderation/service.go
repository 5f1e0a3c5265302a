package moderation

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError(errors.New("word not found"))
	ErrWordExists     = errors.New("word already blacklisted")
	ErrForbiddenWords = errors.New("content contains forbidden words")
)

// Word is a blacklisted term. Words are stored lower-cased.
type Word struct {
	ID        string    `json:"id"`
	Word      string    `json:"word"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewWord struct {
	Word string `json:"word" validate:"required,notblank,max=50"`
}

func (nw *NewWord) Validate(validate *validator.Validate) error {
	nw.Word = core.CleanString(nw.Word, true /* lower */)
	return validate.Struct(nw)
}

type (
	Repository interface {
		QueryWords(ctx context.Context) ([]Word, error)
		// CreateWord returns ErrWordExists if the word is already listed.
		CreateWord(ctx context.Context, w Word) (Word, error)
		DeleteWord(ctx context.Context, id string) error
	}

	// Service keeps an in-process copy of the blacklist, refreshed on every change.
	Service struct {
		repo Repository

		mu     sync.RWMutex
		loaded bool
		words  map[string]struct{}
		terms  []string // multi-word entries, matched as substrings
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) List(ctx context.Context) ([]Word, error) {
	words, err := svc.repo.QueryWords(ctx)
	return words, errors.Wrap(err, "querying words")
}

func (svc *Service) Add(ctx context.Context, admin user.User, nw NewWord) (Word, error) {
	w, err := svc.repo.CreateWord(ctx, Word{
		ID:        uuid.NewString(),
		Word:      nw.Word,
		AddedBy:   admin.ID,
		CreatedAt: user.NowFunc().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrWordExists {
			return Word{}, core.NewValidationError(ErrWordExists, core.FieldError{Field: "word", Error: ErrWordExists.Error()})
		}
		return Word{}, errors.Wrap(err, "creating word")
	}
	svc.invalidate()
	return w, nil
}

func (svc *Service) Remove(ctx context.Context, id string) error {
	if err := svc.repo.DeleteWord(ctx, id); err != nil {
		return err
	}
	svc.invalidate()
	return nil
}

// Check returns a validation error if any of texts contains a blacklisted word.
// Single words match whole words case-insensitively.
func (svc *Service) Check(ctx context.Context, texts ...string) error {
	if err := svc.load(ctx); err != nil {
		return err
	}

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	if len(svc.words) == 0 && len(svc.terms) == 0 {
		return nil
	}
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, tok := range strings.FieldsFunc(lower, isSeparator) {
			if _, ok := svc.words[tok]; ok {
				return core.NewValidationError(ErrForbiddenWords)
			}
		}
		normalized := strings.Join(strings.FieldsFunc(lower, isSeparator), " ")
		for _, term := range svc.terms {
			if strings.Contains(" "+normalized+" ", " "+term+" ") {
				return core.NewValidationError(ErrForbiddenWords)
			}
		}
	}
	return nil
}

func (svc *Service) load(ctx context.Context) error {
	svc.mu.RLock()
	loaded := svc.loaded
	svc.mu.RUnlock()
	if loaded {
		return nil
	}

	list, err := svc.repo.QueryWords(ctx)
	if err != nil {
		return errors.Wrap(err, "loading blacklist")
	}
	words := make(map[string]struct{}, len(list))
	var terms []string
	for _, w := range list {
		parts := strings.FieldsFunc(w.Word, isSeparator)
		switch len(parts) {
		case 0:
		case 1:
			words[parts[0]] = struct{}{}
		default:
			terms = append(terms, strings.Join(parts, " "))
		}
	}

	svc.mu.Lock()
	svc.words, svc.terms, svc.loaded = words, terms, true
	svc.mu.Unlock()
	return nil
}

func (svc *Service) invalidate() {
	svc.mu.Lock()
	svc.loaded = false
	svc.mu.Unlock()
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}
