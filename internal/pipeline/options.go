package pipeline

import "github.com/logsmith/backend/pkg/config"

// Options is the immutable per-invocation configuration of a pipeline.
type Options struct {
	SourceField              string
	CopyFields               []string
	BatchSize                int
	GenerationSampleSize     int
	ValidationSampleSize     int
	ValidationThreshold      float64
	MaxRetries               int
	Parallelism              int
	KeepFailures             bool
	AcceptUserBelowThreshold bool
	SinkWriteAttempts        int
}

func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		SourceField:              cfg.SourceField,
		CopyFields:               cfg.CopyFields,
		BatchSize:                cfg.BatchSize,
		GenerationSampleSize:     cfg.GenerationSampleSize,
		ValidationSampleSize:     cfg.ValidationSampleSize,
		ValidationThreshold:      cfg.ValidationThreshold,
		MaxRetries:               cfg.MaxRetries,
		Parallelism:              cfg.Parallelism,
		KeepFailures:             cfg.KeepFailures,
		AcceptUserBelowThreshold: cfg.AcceptUserBelowThreshold,
		SinkWriteAttempts:        cfg.SinkWriteAttempts,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.SourceField == "" {
		o.SourceField = "content"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.GenerationSampleSize <= 0 {
		o.GenerationSampleSize = 10
	}
	if o.ValidationSampleSize <= 0 {
		o.ValidationSampleSize = 20
	}
	if o.ValidationThreshold <= 0 {
		o.ValidationThreshold = 0.5
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.SinkWriteAttempts <= 0 {
		o.SinkWriteAttempts = 3
	}
	return o
}
