package tokens

import (
	"sync"

	"github.com/osteele/liquid"
	"golang.org/x/net/html"

	"github.com/customeros/mailsync/dto"
	mserrors "github.com/customeros/mailsync/internal/errors"
)

type Mode int

const (
	// ModeText leaves values untouched, used for subjects.
	ModeText Mode = iota
	// ModeHTML escapes every value before substitution.
	ModeHTML
)

type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render substitutes {{placeholders}} in tpl. A template that does not parse or
// render is a FetchOrParse error.
func (r *Renderer) Render(tpl string, data dto.TokenData, mode Mode) (string, error) {
	bindings := data.Bindings()
	if mode == ModeHTML {
		for key, value := range bindings {
			if s, ok := value.(string); ok {
				bindings[key] = html.EscapeString(s)
			}
		}
	}

	parsed, err := r.parse(tpl)
	if err != nil {
		return "", mserrors.Wrap(mserrors.ErrFetchOrParse, err)
	}

	out, renderErr := parsed.RenderString(bindings)
	if renderErr != nil {
		return "", mserrors.Wrap(mserrors.ErrFetchOrParse, renderErr)
	}
	return out, nil
}

func (r *Renderer) parse(tpl string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(tpl); ok {
		return cached.(*liquid.Template), nil
	}
	parsed, err := r.engine.ParseString(tpl)
	if err != nil {
		return nil, err
	}
	r.cache.Store(tpl, parsed)
	return parsed, nil
}
