package solbc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

// ProgramLogPrefix marks a log line emitted by a program via msg!/sol_log.
const ProgramLogPrefix = "Program log: "

// AnchorError represents an error from Anchor framework
type AnchorError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// ErrorAnalyzer provides methods to analyze Solana transaction errors
type ErrorAnalyzer struct {
	logger *zap.Logger
}

// NewErrorAnalyzer creates a new ErrorAnalyzer instance
func NewErrorAnalyzer(logger *zap.Logger) *ErrorAnalyzer {
	return &ErrorAnalyzer{
		logger: logger.Named("error-analyzer"),
	}
}

// LastProgramLog returns the text of the last "Program log: " line, which is
// where programs report the reason they failed.
func LastProgramLog(logs []string) (string, bool) {
	for i := len(logs) - 1; i >= 0; i-- {
		if strings.HasPrefix(logs[i], ProgramLogPrefix) {
			return strings.TrimPrefix(logs[i], ProgramLogPrefix), true
		}
	}
	return "", false
}

// ProgramMessage extracts a human-readable failure message from transaction
// logs and reports any Anchor error it finds.
func (ea *ErrorAnalyzer) ProgramMessage(logs []string) (string, bool) {
	msg, ok := LastProgramLog(logs)
	if !ok {
		return "", false
	}
	if strings.Contains(msg, "AnchorError") {
		anchorErr := ParseAnchorErrorLog(msg)
		ea.logger.Warn("Anchor error detected",
			zap.Int("code", anchorErr.Code),
			zap.String("name", anchorErr.Name),
			zap.String("message", anchorErr.Msg))
	}
	return msg, true
}

// AnalyzeRPCError analyzes a jsonrpc.RPCError and extracts detailed information
func (ea *ErrorAnalyzer) AnalyzeRPCError(err error) map[string]interface{} {
	if err == nil {
		return map[string]interface{}{
			"error": "No error provided",
		}
	}

	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		return map[string]interface{}{
			"type":    "generic_error",
			"message": err.Error(),
		}
	}

	result := map[string]interface{}{
		"type":    "rpc_error",
		"code":    rpcErr.Code,
		"message": rpcErr.Message,
	}

	dataMap, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return result
	}
	if logs, ok := dataMap["logs"].([]interface{}); ok {
		result["logs"] = logs
		lines := make([]string, 0, len(logs))
		for _, l := range logs {
			if s, ok := l.(string); ok {
				lines = append(lines, s)
			}
		}
		if msg, ok := ea.ProgramMessage(lines); ok {
			result["program_message"] = msg
		}
	}
	if instrErr, ok := dataMap["err"]; ok {
		result["instruction_error"] = instrErr
	}

	return result
}

// ParseAnchorErrorLog parses an Anchor error log string
// Example: "AnchorError occurred. Error Code: InstructionFallbackNotFound. Error Number: 101. Error Message: Fallback functions are not supported."
func ParseAnchorErrorLog(logStr string) AnchorError {
	result := AnchorError{}

	if parts := strings.SplitN(logStr, "Error Number:", 2); len(parts) > 1 {
		numParts := strings.Split(parts[1], ".")
		fmt.Sscanf(strings.TrimSpace(numParts[0]), "%d", &result.Code)
	}

	if parts := strings.SplitN(logStr, "Error Code:", 2); len(parts) > 1 {
		result.Name = strings.TrimSpace(strings.Split(parts[1], ".")[0])
	}

	if parts := strings.SplitN(logStr, "Error Message:", 2); len(parts) > 1 {
		result.Msg = strings.TrimSuffix(strings.TrimSpace(parts[1]), ".")
	}

	return result
}

// FormatErrorAnalysis formats the error analysis for logging or display
func (ea *ErrorAnalyzer) FormatErrorAnalysis(analysis map[string]interface{}) string {
	jsonBytes, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error formatting analysis: %v", err)
	}
	return string(jsonBytes)
}
