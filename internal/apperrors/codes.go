package apperrors

import (
	"fmt"
	"net/http"
)

// Error code constants (spec §7). Every error carries one of these stable
// codes; the constructors below also fill in an English Message built from
// their parameters.

// Parse/Model error codes.
const (
	CodeInvalidAddress          = "INVALID_ADDRESS"
	CodeInvalidVarType          = "INVALID_VAR_TYPE"
	CodeUnknownCommand          = "UNKNOWN_COMMAND"
	CodeNoDirectivePresent      = "NO_DIRECTIVE_PRESENT"
	CodeMissingEndQuotes        = "MISSING_END_QUOTES"
	CodeControlWithoutValue     = "CONTROL_WITHOUT_VALID_VALUE"
	CodeScenarioMissingModules  = "SCENARIO_MISSING_MODULES"
	CodeUnsupportedFeature      = "UNSUPPORTED_FEATURE"
	CodeEngineVersionMismatch   = "ENGINE_VERSION_MISMATCH"
	CodeInvalidManifest         = "INVALID_MANIFEST"
)

// Runtime VM error codes. These stay internal (logged, never wrapped in an
// AppError) per the §7 propagation rule, but the codes are still named here
// so the single log call site and any tests referencing them share one
// vocabulary with the rest of the catalogue.
const (
	CodeUnknownVariable        = "UNKNOWN_VARIABLE"
	CodeTypeMismatch           = "TYPE_MISMATCH"
	CodeArithmeticError        = "ARITHMETIC_ERROR"
	CodeRuntimeBudgetExceeded  = "RUNTIME_BUDGET_EXCEEDED"
	CodeNoCommandPresent       = "NO_COMMAND_PRESENT"
	CodeInvalidCommandBody     = "INVALID_COMMAND_BODY"
)

// Storage error codes.
const (
	CodeMissingKey          = "MISSING_KEY"
	CodeDuplicateEntityName = "DUPLICATE_ENTITY_NAME"
	CodeUnknownEntity       = "UNKNOWN_ENTITY"
	CodeUnknownPrefab       = "UNKNOWN_PREFAB"
)

// Network error codes.
const (
	CodeHostUnreachable         = "HOST_UNREACHABLE"
	CodeSocketNotConnected      = "SOCKET_NOT_CONNECTED"
	CodeSocketNotBoundToAddress = "SOCKET_NOT_BOUND_TO_ADDRESS"
	CodeHandshakeFailed         = "HANDSHAKE_FAILED"
	CodeWrongSocketAddressType  = "WRONG_SOCKET_ADDRESS_TYPE"
)

// Task/Distribution error codes.
const (
	CodeRequestIDExhausted = "REQUEST_ID_EXHAUSTED"
	CodeTaskTimeout        = "TASK_TIMEOUT"
	CodeReturnIDError      = "RETURN_ID_ERROR"
)

// Snapshot error codes.
const (
	CodeFailedReadingSnapshot = "FAILED_READING_SNAPSHOT"
	CodeCorruptSnapshot       = "CORRUPT_SNAPSHOT"
)

// Convenience constructors using predefined codes.

// TypeMismatch creates a storage/runtime type-mismatch error: a write or
// parse whose value does not match the destination's type tag.
func TypeMismatch(wantType, got string) *AppError {
	return &AppError{
		Code:       CodeTypeMismatch,
		Message:    fmt.Sprintf("expected %s, got %q", wantType, got),
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidAddress creates an invalid-address parse error.
func InvalidAddress(raw string) *AppError {
	return &AppError{
		Code:       CodeInvalidAddress,
		Message:    "invalid address: " + raw,
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidVarType creates an unrecognized-var-type parse error.
func InvalidVarType(raw string) *AppError {
	return &AppError{
		Code:       CodeInvalidVarType,
		Message:    "invalid var type: " + raw,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ScenarioMissingModules creates the scenario-load failure for a missing or
// version-unsatisfied module dependency.
func ScenarioMissingModules(module string) *AppError {
	return &AppError{
		Code:       CodeScenarioMissingModules,
		Message:    "scenario is missing required module: " + module,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// EngineVersionMismatch creates the module-load failure for a module whose
// engine_version requirement the running build does not satisfy.
func EngineVersionMismatch(module, requirement, actual string) *AppError {
	return &AppError{
		Code:       CodeEngineVersionMismatch,
		Message:    fmt.Sprintf("module %q requires engine %s, running %s", module, requirement, actual),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// UnsupportedFeature creates the module-load failure for an engine feature
// a module manifest depends on that this build does not provide.
func UnsupportedFeature(feature string) *AppError {
	return &AppError{
		Code:       CodeUnsupportedFeature,
		Message:    "module requires unsupported engine feature: " + feature,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// TaskTimeout creates a distribution task timeout error.
func TaskTimeout(taskID string) *AppError {
	return &AppError{
		Code:       CodeTaskTimeout,
		Message:    "task timed out waiting for worker responses: " + taskID,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// MissingKey creates a storage lookup failure for an unset (component, var)
// key.
func MissingKey(component, varName string) *AppError {
	return &AppError{
		Code:       CodeMissingKey,
		Message:    "missing storage key: " + component + ":" + varName,
		HTTPStatus: http.StatusNotFound,
	}
}

// UnknownEntity creates a storage/routing lookup failure for an entity id
// or name that does not exist in the simulation.
func UnknownEntity(ref string) *AppError {
	return &AppError{
		Code:       CodeUnknownEntity,
		Message:    "unknown entity: " + ref,
		HTTPStatus: http.StatusNotFound,
	}
}

// UnknownPrefab creates a spawn failure for a prefab name absent from the
// current model.
func UnknownPrefab(name string) *AppError {
	return &AppError{
		Code:       CodeUnknownPrefab,
		Message:    "unknown entity prefab: " + name,
		HTTPStatus: http.StatusNotFound,
	}
}

// DuplicateEntityName creates a spawn failure for a name already present in
// the entity name index.
func DuplicateEntityName(name string) *AppError {
	return &AppError{
		Code:       CodeDuplicateEntityName,
		Message:    "entity name already in use: " + name,
		HTTPStatus: http.StatusConflict,
	}
}

// CorruptSnapshot creates a snapshot decode failure.
func CorruptSnapshot(name string) *AppError {
	return &AppError{
		Code:       CodeCorruptSnapshot,
		Message:    "snapshot is corrupt or unreadable: " + name,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}
