package errors

import sterrors "errors"

var (
	ErrReceiverRequired     = sterrors.New("pullflow: receiver is required")
	ErrDecodersRequired     = sterrors.New("pullflow: at least one decoder is required")
	ErrDuplicateTypeTag     = sterrors.New("pullflow: duplicate decoder type tag")
	ErrNoDecoders           = sterrors.New("pullflow: envelope has no type tag and no decoder is registered")
	ErrAmbiguousTypeTag     = sterrors.New("pullflow: envelope has no type tag and multiple decoders are registered")
	ErrAutoAckUnsupported   = sterrors.New("pullflow: auto-acknowledge requires a peek-lock receiver")
	ErrManualAckUnsupported = sterrors.New("pullflow: manual acknowledgment is not available in receive-and-delete mode")
	ErrSourceClosed         = sterrors.New("pullflow: source is closed")
	ErrReceiverClosed       = sterrors.New("pullflow: receiver is closed")
	ErrNotSettleable        = sterrors.New("pullflow: envelope does not support settlement")
)
