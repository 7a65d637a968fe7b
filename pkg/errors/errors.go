// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Punchcard Contributors

// Package errors carries machine-readable codes on top of samber/oops.
// Codes are dotted <domain>.<subject>[.<op>].<reason>; the classifiers below
// look only at the final reason segment.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreDatabaseFailure        Code = "store.database.failure"
	CodeStoreInvalidInput           Code = "store.invalid_input"
	CodeStoreBackendUnsupported     Code = "store.backend.unsupported"
	CodeStoreEventGetNotFound       Code = "store.event.get.not_found"
	CodeStoreEventAppendInvalid     Code = "store.event.append.invalid_input"
	CodeStoreEventAppendConflict    Code = "store.event.append.conflict"
	CodeStoreEmbeddingGetNotFound   Code = "store.embedding.get.not_found"
	CodeStoreSnapshotInvalid        Code = "store.snapshot.replace.invalid_input"
	CodeStoreSnapshotEncryptFailure Code = "store.snapshot.encrypt.failure"
	CodeStoreSnapshotDecryptFailure Code = "store.snapshot.decrypt.failure"
	CodeStoreSnapshotDecodeFailure  Code = "store.snapshot.decode.failure"

	CodeMatcherDimensionMismatch Code = "matcher.dimension.mismatch"
	CodeMatcherProbeInvalid      Code = "matcher.probe.invalid_input"
	CodeMatcherNoMatch           Code = "matcher.identify.not_found"

	CodeRemoteEventRejected         Code = "remote.event.rejected"
	CodeRemoteTransportUnavailable  Code = "remote.transport.unavailable"
	CodeRemoteResponseInvalid       Code = "remote.response.invalid"
	CodeRemoteAuthUnauthorized      Code = "remote.auth.unauthorized"
	CodeRemoteRequestInvalid        Code = "remote.request.invalid"
	CodeRemoteDeviceRegisterInvalid Code = "remote.device.register.invalid"

	CodeSyncPullFailure Code = "sync.embeddings.pull.failure"
	CodeSyncPushFailure Code = "sync.events.push.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigAlreadyExists        Code = "config.write.conflict"

	CodeSecretInvalidInput   Code = "secret.input.invalid"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretKeyInvalid     Code = "secret.key.invalid"
	CodeSecretSealFailure    Code = "secret.seal.failure"
	CodeSecretOpenFailure    Code = "secret.open.failure"

	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLITerminalNotRunning Code = "cli.terminal.not_running"
	CodeCLIRequestFailure     Code = "cli.request.failure"
	CodeCLIResponseInvalid    Code = "cli.response.invalid"
	CodeCLISetupFailure       Code = "cli.setup.failure"
	CodeCLIInputInvalid       Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldEventID(value string) Attr {
	return Field("event_id", value)
}

func FieldIdentity(value string) Attr {
	return Field("identity", value)
}

func FieldDeviceID(value string) Attr {
	return Field("device_id", value)
}

func FieldStatus(value int) Attr {
	return Field("http_status", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain, keeping its code.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden" || r == "denied"
}

// IsRejected reports whether the remote authority refused a request on its
// merits. Rejected work stays queued for a later pass.
func IsRejected(err error) bool {
	return reason(CodeOf(err)) == "rejected"
}

// IsUnavailable reports whether the remote authority could not be reached.
func IsUnavailable(err error) bool {
	return reason(CodeOf(err)) == "unavailable"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsRejected(err):
		return http.StatusUnprocessableEntity
	case IsUnauthorized(err):
		if r := reason(CodeOf(err)); r == "forbidden" || r == "denied" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
