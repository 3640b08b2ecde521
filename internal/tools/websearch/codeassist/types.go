package codeassist

type clientMetadata struct {
	IDEType    string `json:"ideType"`
	Platform   string `json:"platform"`
	PluginType string `json:"pluginType"`
	// DuetProject mirrors the configured project, when there is one
	DuetProject string `json:"duetProject,omitempty"`
}

type loadCodeAssistRequest struct {
	CloudAICompanionProject string         `json:"cloudaicompanionProject,omitempty"`
	Metadata                clientMetadata `json:"metadata"`
}

type loadCodeAssistResponse struct {
	CloudAICompanionProject string `json:"cloudaicompanionProject"`
}

type generateContentRequest struct {
	Model        string        `json:"model"`
	Project      string        `json:"project,omitempty"`
	UserPromptID string        `json:"user_prompt_id,omitempty"`
	Request      vertexRequest `json:"request"`
}

type vertexRequest struct {
	Contents  []content `json:"contents"`
	Tools     []tool    `json:"tools,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}
