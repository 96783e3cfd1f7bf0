// Package synthesize produces the narrative for one country report, calling a
// language model when one is available and falling back to a deterministic
// template otherwise.
package synthesize

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/TobiSchelling/intelbrief/internal/fetch"
	"github.com/TobiSchelling/intelbrief/internal/llm"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

// State is a step of the synthesis state machine.
type State string

const (
	StateNoContent        State = "NO_CONTENT"
	StateModelUnavailable State = "MODEL_UNAVAILABLE"
	StateExtracting       State = "EXTRACTING"
	StatePrompting        State = "PROMPTING"
	StateModelCall        State = "MODEL_CALL"
	StateSuccess          State = "SUCCESS"
	StateModelFailure     State = "MODEL_FAILURE"
)

// Notes attached to degraded narratives.
const (
	NoteNoContent   = "No articles matched this country in the reporting period."
	NoteUnavailable = "No language model configured; narrative generated from article statistics."
	NoteFailure     = "Language model call failed; narrative generated from article statistics."
)

var errEmptyResponse = errors.New("empty model response")

// Extractor attaches full text to copies of articles.
type Extractor interface {
	Extract(ctx context.Context, articles []*news.Article) *fetch.Result
}

// Options tunes the synthesizer. Zero values select defaults.
type Options struct {
	MaxTokens         int
	Timeout           time.Duration
	MaxPromptArticles int
	Now               func() time.Time
}

// Request is one country narrative request. Articles are the optimizer's
// selection from Bucket.
type Request struct {
	Country  string
	Bucket   *news.Bucket
	Articles []*news.Article
	Focus    string
}

// Result reports the narrative and how it was produced.
type Result struct {
	Narrative string
	Origin    news.NarrativeOrigin
	Note      string
	// Trace lists the states visited, in order.
	Trace []State
	// ModelErr is set when the model call failed and the fallback was used.
	ModelErr error
	// Articles are the prompt candidates, with content where extraction succeeded.
	Articles []*news.Article
	Prompt   string
}

func (r *Result) enter(s State) { r.Trace = append(r.Trace, s) }

// Synthesizer runs the narrative state machine. provider and extractor may be nil.
type Synthesizer struct {
	provider  llm.Provider
	extractor Extractor
	opts      Options
}

// New creates a synthesizer.
func New(provider llm.Provider, extractor Extractor, opts Options) *Synthesizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxPromptArticles <= 0 {
		opts.MaxPromptArticles = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synthesizer{provider: provider, extractor: extractor, opts: opts}
}

// ModelAvailable reports whether a configured model will be called.
func (s *Synthesizer) ModelAvailable() bool {
	return s.provider != nil && s.provider.IsConfigured()
}

// Synthesize produces a narrative. It never fails: model errors are returned in
// Result.ModelErr alongside the fallback narrative.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) Result {
	var r Result

	if req.Bucket == nil || len(req.Bucket.Articles) == 0 {
		r.enter(StateNoContent)
		r.Narrative = NoContentNarrative(req.Country)
		r.Origin = news.OriginNoContent
		r.Note = NoteNoContent
		return r
	}

	articles := req.Articles
	if articles == nil {
		articles = req.Bucket.Articles
	}
	if len(articles) > s.opts.MaxPromptArticles {
		articles = articles[:s.opts.MaxPromptArticles]
	}
	r.Articles = articles

	if !s.ModelAvailable() {
		r.enter(StateModelUnavailable)
		r.Narrative = Fallback(req.Country, req.Bucket, articles)
		r.Origin = news.OriginFallback
		r.Note = NoteUnavailable
		return r
	}

	if s.extractor != nil {
		r.enter(StateExtracting)
		r.Articles = s.extractor.Extract(ctx, articles).Articles
	}

	r.enter(StatePrompting)
	r.Prompt = BuildPrompt(req.Country, r.Articles, req.Focus, s.opts.Now())

	r.enter(StateModelCall)
	text, err := s.callModel(ctx, r.Prompt)
	if err != nil {
		log.Printf("Narrative model call failed for %s: %v", req.Country, err)
		r.enter(StateModelFailure)
		r.ModelErr = err
		r.Narrative = Fallback(req.Country, req.Bucket, r.Articles)
		r.Origin = news.OriginFallback
		r.Note = NoteFailure
		return r
	}

	r.enter(StateSuccess)
	r.Narrative = text
	r.Origin = news.OriginModel
	return r
}

func (s *Synthesizer) callModel(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	text, err := s.provider.Generate(ctx, prompt, s.opts.MaxTokens)
	if err != nil {
		return "", err
	}
	text = llm.CleanResponse(text)
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}
