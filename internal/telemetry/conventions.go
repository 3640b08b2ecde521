package telemetry

// Attribute names follow the MCP observability conventions where they exist

const (
	// MCP Tool attributes
	AttrMCPToolName    = "mcp.tool.name"           // Tool identifier (e.g., "web_search")
	AttrMCPToolSuccess = "mcp.tool.result.success" // Execution success (boolean)
	AttrMCPToolError   = "mcp.tool.result.error"   // Error message if failed (string)

	// MCP Session attributes
	AttrMCPSessionID = "mcp.session.id" // Unique session identifier
	AttrMCPTransport = "mcp.transport"  // Transport type (stdio/http/sse)

	// LLM attributes
	AttrLLMSystem = "llm.system" // Provider family (e.g., "gemini", "openrouter")
	AttrLLMModel  = "llm.model"  // Model identifier

	// Web search attributes
	AttrSearchSourceCount = "websearch.sources.count" // Number of sources in the answer
	AttrSearchErrorType   = "websearch.error.type"    // validation, auth, upstream or internal
)

// Span names
const (
	SpanNameToolExecute    = "mcp.tool.execute"  // Tool execution span
	SpanNameHTTPClient     = "http.client"       // HTTP client request span
	SpanNameProviderSearch = "websearch.provider" // Upstream provider call
)
