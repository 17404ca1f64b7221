// Package mcptools exposes checkpoint issuance and certificate verification
// as Model Context Protocol tools, so an agent (or its supervising harness)
// can call aip_issue_checkpoint / aip_verify_certificate the same way it
// would call any other structured tool — no direct import of the aip
// package from the calling agent's runtime is required.
package mcptools

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mnemom/aip-core/internal/signing"
)

const serverInstructions = `You have access to an integrity attestation tool for AI-agent reasoning checkpoints.

WORKFLOW:

1. AFTER producing a verdict at a reasoning checkpoint, call aip_issue_checkpoint
   with the checkpoint's subject, verdict, and thinking-block hash. This returns a
   signed, chain-linked, offline-verifiable certificate.

2. BEFORE trusting a certificate you did not just issue yourself, call
   aip_verify_certificate with the certificate and the issuer's public key.
   Only rely on the verdict if every check in the result is true.

TOOLS:
- aip_issue_checkpoint: issue a certificate for a checkpoint you just evaluated
- aip_verify_certificate: verify a certificate entirely offline`

// Server wraps an MCP server exposing the attestation core's issue/verify
// operations as tools.
type Server struct {
	mcpServer *mcpserver.MCPServer
	logger    *slog.Logger

	issue  func(ctx context.Context, args map[string]any) (any, error)
	verify func(cert any, public ed25519.PublicKey) (any, error)
}

// IssueFunc adapts a caller's issuance entrypoint (typically
// aip.Issuer.IssueCheckpoint, wrapped to accept the tool's JSON argument
// map) to the shape registerTools needs.
type IssueFunc func(ctx context.Context, args map[string]any) (any, error)

// VerifyFunc adapts a caller's verification entrypoint (typically aip.Verify)
// to accept a raw certificate value (already unmarshaled from the tool
// call's JSON argument) and a public key, returning a JSON-marshalable
// outcome.
type VerifyFunc func(cert any, public ed25519.PublicKey) (any, error)

// New creates an MCP server exposing aip_issue_checkpoint and
// aip_verify_certificate, backed by issue and verify.
func New(issue IssueFunc, verify VerifyFunc, logger *slog.Logger, version string) *Server {
	s := &Server{logger: logger, issue: issue, verify: verify}

	s.mcpServer = mcpserver.NewMCPServer(
		"aip-core",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("aip_issue_checkpoint",
			mcplib.WithDescription(`Issue a signed, chain-linked integrity certificate for a reasoning checkpoint.

WHEN TO USE: immediately after your analysis produces a verdict at a checkpoint
you want an offline-verifiable record of. Call this once per checkpoint, in
order, within a session — the certificate chains to the previous one issued
for the same session_key.

WHAT YOU GET BACK: the full certificate JSON, including its signature, chain
link, and (if requested) a Merkle inclusion proof.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("session_key",
				mcplib.Description("Identifies the session whose hash chain this checkpoint extends."),
				mcplib.Required(),
			),
			mcplib.WithString("checkpoint_id", mcplib.Description("Caller-assigned identifier for this checkpoint."), mcplib.Required()),
			mcplib.WithString("agent_id", mcplib.Description("The agent that produced this checkpoint."), mcplib.Required()),
			mcplib.WithString("card_id", mcplib.Description("Identifier of the policy card evaluated."), mcplib.Required()),
			mcplib.WithString("verdict", mcplib.Description("The verdict reached at this checkpoint."), mcplib.Required()),
			mcplib.WithString("thinking_block_hash", mcplib.Description("64-hex SHA-256 of the reasoning transcript this verdict was derived from."), mcplib.Required()),
			mcplib.WithString("reasoning_summary", mcplib.Description("Short human-readable summary of the reasoning.")),
			mcplib.WithString("analysis_model", mcplib.Description("Model that performed the analysis.")),
			mcplib.WithNumber("confidence", mcplib.Description("Confidence in the verdict, 0.0-1.0."), mcplib.Min(0), mcplib.Max(1)),
			mcplib.WithBoolean("include_merkle_proof", mcplib.Description("Extend the issuer's Merkle tree and attach an inclusion proof.")),
		),
		s.handleIssue,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("aip_verify_certificate",
			mcplib.WithDescription(`Verify an integrity certificate entirely offline against a public key.

WHEN TO USE: before trusting a certificate you did not issue yourself —
e.g. one received from another agent or fetched from storage. Returns
signature/chain/merkle/commitment/verdict_derivation outcomes individually
so a caller can see exactly which check (if any) failed.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("certificate", mcplib.Description("The certificate JSON, as returned by aip_issue_checkpoint."), mcplib.Required()),
			mcplib.WithString("public_key_hex", mcplib.Description("The issuer's Ed25519 public key, hex-encoded."), mcplib.Required()),
		),
		s.handleVerify,
	)
}

func (s *Server) handleIssue(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := map[string]any{
		"session_key":          request.GetString("session_key", ""),
		"checkpoint_id":        request.GetString("checkpoint_id", ""),
		"agent_id":             request.GetString("agent_id", ""),
		"card_id":              request.GetString("card_id", ""),
		"verdict":              request.GetString("verdict", ""),
		"thinking_block_hash":  request.GetString("thinking_block_hash", ""),
		"reasoning_summary":    request.GetString("reasoning_summary", ""),
		"analysis_model":       request.GetString("analysis_model", ""),
		"confidence":           request.GetFloat("confidence", 0),
		"include_merkle_proof": boolParam(request, "include_merkle_proof"),
	}

	result, err := s.issue(ctx, args)
	if err != nil {
		return errorResult("issue checkpoint failed: " + err.Error()), nil
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResult("marshal certificate failed: " + err.Error()), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: string(data)}},
	}, nil
}

func (s *Server) handleVerify(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	certJSON := request.GetString("certificate", "")
	if certJSON == "" {
		return errorResult("certificate is required"), nil
	}
	pubHex := request.GetString("public_key_hex", "")
	if pubHex == "" {
		return errorResult("public_key_hex is required"), nil
	}

	pub, err := signing.DecodeHex(pubHex)
	if err != nil {
		return errorResult("invalid public_key_hex: " + err.Error()), nil
	}
	if len(pub) != ed25519.PublicKeySize {
		return errorResult("public_key_hex must decode to 32 bytes"), nil
	}

	var cert any
	if err := json.Unmarshal([]byte(certJSON), &cert); err != nil {
		return errorResult("invalid certificate JSON: " + err.Error()), nil
	}

	outcome, err := s.verify(cert, ed25519.PublicKey(pub))
	if err != nil {
		return errorResult("verify failed: " + err.Error()), nil
	}

	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return errorResult("marshal outcome failed: " + err.Error()), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: string(data)}},
	}, nil
}

func boolParam(request mcplib.CallToolRequest, name string) bool {
	args, _ := request.Params.Arguments.(map[string]any)
	v, _ := args[name].(bool)
	return v
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: msg}},
		IsError: true,
	}
}
