// Package ingest runs raw envelope documents through parsing,
// deduplication and a message handler, recording metrics on the way.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firestige.xyz/envelope/internal/config"
	"firestige.xyz/envelope/internal/log"
	"firestige.xyz/envelope/internal/metrics"
	"firestige.xyz/envelope/pkg/envelope"
	"firestige.xyz/envelope/pkg/registry"
)

// Handler receives every accepted message.
type Handler interface {
	Handle(ctx context.Context, msg *envelope.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *envelope.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *envelope.Message) error {
	return f(ctx, msg)
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithSource sets the source label used in metrics and logs.
func WithSource(source string) Option {
	return func(i *Ingestor) {
		i.source = source
	}
}

// WithDefaultHeaders adds h to every message that does not set them.
func WithDefaultHeaders(h *envelope.Headers) Option {
	return func(i *Ingestor) {
		i.defaults = h
	}
}

// WithDeduplicator drops messages d has seen before.
func WithDeduplicator(d *Deduplicator) Option {
	return func(i *Ingestor) {
		i.dedupe = d
	}
}

// WithLogger overrides the process logger.
func WithLogger(l log.Logger) Option {
	return func(i *Ingestor) {
		i.logger = l
	}
}

// Ingestor is safe for concurrent use when its handler is.
type Ingestor struct {
	parser   *envelope.Parser
	handler  Handler
	source   string
	defaults *envelope.Headers
	dedupe   *Deduplicator
	logger   log.Logger
}

// New creates an ingestor. handler may be nil.
func New(parser *envelope.Parser, handler Handler, opts ...Option) *Ingestor {
	i := &Ingestor{
		parser:  parser,
		handler: handler,
		source:  "default",
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// FromConfig builds an ingestor from the parser and dedupe settings of cfg.
// Every configured header type must be registered in reg.
func FromConfig(cfg *config.Config, reg *registry.Registry, handler Handler, opts ...Option) (*Ingestor, error) {
	pc := cfg.Parser
	for name, descriptor := range pc.HeaderTypes {
		if _, ok := reg.Resolve(descriptor); !ok {
			return nil, fmt.Errorf("parser.header_types.%s: %w: %q", name, envelope.ErrUnknownHeaderType, descriptor)
		}
	}
	if pc.PayloadType != "" {
		if _, ok := reg.Resolve(pc.PayloadType); !ok {
			log.GetLogger().WithField("payload_type", pc.PayloadType).
				Warn("payload type is not registered, payloads will be decoded structurally")
		}
	}

	parser := envelope.NewParser(
		envelope.WithResolver(reg),
		envelope.WithPayloadType(pc.PayloadType),
		envelope.WithHeaderTypes(pc.HeaderTypes),
		envelope.WithMaxDepth(pc.MaxDepth),
	)

	base := make([]Option, 0, 2+len(opts))
	if len(pc.DefaultHeaders) > 0 {
		defaults := make(map[string]any, len(pc.DefaultHeaders))
		for name, value := range pc.DefaultHeaders {
			defaults[name] = value
		}
		base = append(base, WithDefaultHeaders(envelope.HeadersFrom(defaults)))
	}
	if dd := cfg.Consumer.Dedupe; dd.Enabled {
		base = append(base, WithDeduplicator(NewDeduplicator(dd.Header, dd.TTLDuration(), dd.CleanupDuration())))
	}

	return New(parser, handler, append(base, opts...)...), nil
}

// Parser returns the parser the ingestor uses.
func (i *Ingestor) Parser() *envelope.Parser {
	return i.parser
}

// Ingest parses data and hands the message to the handler. Entries of
// extra are added where the document does not set them and take precedence
// over default headers.
//
// The message is returned with ErrDuplicate for a duplicate, and with the
// handler's error when the handler fails; parse failures return no message.
func (i *Ingestor) Ingest(ctx context.Context, data []byte, extra *envelope.Headers) (*envelope.Message, error) {
	logger := i.log()

	start := time.Now()
	msg, err := i.parser.ParseBytes(data, i.additional(extra))
	metrics.ParseDurationSeconds.WithLabelValues(i.source).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ParsedTotal.WithLabelValues(i.source, ReasonOf(err)).Inc()
		logger.WithError(err).Warn("envelope rejected")
		return nil, err
	}

	if i.dedupe != nil {
		if err := i.dedupe.Check(msg); err != nil {
			metrics.ParsedTotal.WithLabelValues(i.source, metrics.ResultDuplicate).Inc()
			metrics.DuplicatesTotal.WithLabelValues(i.source).Inc()
			logger.WithError(err).Debug("envelope dropped")
			return msg, err
		}
	}

	headers := msg.Headers()
	metrics.ParsedTotal.WithLabelValues(i.source, metrics.ResultOK).Inc()
	metrics.HeadersPerMessage.WithLabelValues(i.source).Observe(float64(headers.Len()))
	if logger.IsDebugEnabled() {
		logger.WithField("headers", headers.Names()).Debug("envelope parsed")
	}

	if i.handler == nil {
		return msg, nil
	}
	if err := i.handler.Handle(ctx, msg); err != nil {
		return msg, fmt.Errorf("handle message: %w", err)
	}
	return msg, nil
}

func (i *Ingestor) additional(extra *envelope.Headers) *envelope.Headers {
	if i.defaults.Len() == 0 {
		return extra
	}
	merged := extra.Clone()
	i.defaults.Range(func(name string, value any) bool {
		if !merged.Has(name) {
			merged.Set(name, value)
		}
		return true
	})
	return merged
}

func (i *Ingestor) log() log.Logger {
	if i.logger != nil {
		return i.logger.WithField("source", i.source)
	}
	return log.GetLogger().WithField("source", i.source)
}

// ReasonOf maps an Ingest error to the result label recorded for it.
func ReasonOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrDuplicate):
		return metrics.ResultDuplicate
	case errors.Is(err, envelope.ErrTokenization):
		return "tokenization"
	case errors.Is(err, envelope.ErrUnrecognizedField):
		return "unrecognized_field"
	case errors.Is(err, envelope.ErrMissingHeaders):
		return "missing_headers"
	case errors.Is(err, envelope.ErrUnknownHeaderType):
		return "unknown_header_type"
	case errors.Is(err, envelope.ErrMalformedEnvelope):
		return "malformed"
	default:
		return "error"
	}
}
