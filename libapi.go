package pullflow

import (
	runtimepkg "github.com/drblury/pullflow/internal/runtime"
	configpkg "github.com/drblury/pullflow/internal/runtime/config"
	errspkg "github.com/drblury/pullflow/internal/runtime/errors"
	idspkg "github.com/drblury/pullflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/pullflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/pullflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/pullflow/internal/runtime/metadata"
	transportpkg "github.com/drblury/pullflow/transport"
)

type (
	Config      = configpkg.Config
	ReceiveMode = runtimepkg.ReceiveMode

	// Core receive contracts
	Receiver       = runtimepkg.Receiver
	Envelope       = runtimepkg.Envelope
	Settler        = runtimepkg.Settler
	Decoder        = runtimepkg.Decoder
	Acknowledgment = runtimepkg.Acknowledgment
	Ackable        = runtimepkg.Ackable
	AckProvider    = runtimepkg.AckProvider

	// Stream surface
	Source       = runtimepkg.Source
	Subscription = runtimepkg.Subscription
	Option       = runtimepkg.Option

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Metrics
	SourceMetrics = runtimepkg.SourceMetrics

	// Transport registry types
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

// Receive modes.
const (
	ReceivePeekLock  = runtimepkg.ReceivePeekLock
	ReceiveAndDelete = runtimepkg.ReceiveAndDelete
)

// TypeTagProperty is the default envelope property carrying the type tag.
const TypeTagProperty = runtimepkg.TypeTagProperty

// DefaultReceiveTimeout bounds a single receive call unless overridden.
const DefaultReceiveTimeout = runtimepkg.DefaultReceiveTimeout

var (
	NewSource             = runtimepkg.NewSource
	NewSettlerAckProvider = runtimepkg.NewSettlerAckProvider
	NewSourceMetrics      = runtimepkg.NewSourceMetrics

	// Source options
	WithAutoAcknowledge = runtimepkg.WithAutoAcknowledge
	WithAckProvider     = runtimepkg.WithAckProvider
	WithLogger          = runtimepkg.WithLogger
	WithMetrics         = runtimepkg.WithMetrics
	WithReceiveTimeout  = runtimepkg.WithReceiveTimeout
	WithTypeTagProperty = runtimepkg.WithTypeTagProperty
	WithTracerProvider  = runtimepkg.WithTracerProvider
	WithPropagator      = runtimepkg.WithPropagator

	ValidateConfig = configpkg.ValidateConfig

	// Logging constructors
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter
	NopLogger                 = loggingpkg.Nop

	// Identifiers
	CreateULID = idspkg.CreateULID

	// JSON helpers backed by the shared codec
	MarshalJSON   = jsoncodec.Marshal
	UnmarshalJSON = jsoncodec.Unmarshal

	// Transport registry helpers
	NewTransportRegistry     = transportpkg.NewRegistry
	RegisterTransport        = transportpkg.Register
	GetTransportCapabilities = transportpkg.GetCapabilities
	BuildReceiver            = transportpkg.Build
	ParseReceiveMode         = transportpkg.ParseReceiveMode
)

// Sentinel errors surfaced by sources and acknowledgment handles.
var (
	ErrReceiverRequired     = errspkg.ErrReceiverRequired
	ErrDecodersRequired     = errspkg.ErrDecodersRequired
	ErrDuplicateTypeTag     = errspkg.ErrDuplicateTypeTag
	ErrNoDecoders           = errspkg.ErrNoDecoders
	ErrAmbiguousTypeTag     = errspkg.ErrAmbiguousTypeTag
	ErrAutoAckUnsupported   = errspkg.ErrAutoAckUnsupported
	ErrManualAckUnsupported = errspkg.ErrManualAckUnsupported
	ErrSourceClosed         = errspkg.ErrSourceClosed
	ErrReceiverClosed       = errspkg.ErrReceiverClosed
	ErrNotSettleable        = errspkg.ErrNotSettleable
)
