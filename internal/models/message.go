package models

// MessageType tags an inbound message
type MessageType string

const (
	MsgSupabaseRequest        MessageType = "supabase_request"
	MsgAssetBody              MessageType = "asset_body"
	MsgRegisterAssetDetection MessageType = "register_asset_detection"
	MsgRegisterLeak           MessageType = "register_leak"
	MsgApplyConnection        MessageType = "apply_connection"
	MsgTabUpdated             MessageType = "tab_updated"
	MsgTabRemoved             MessageType = "tab_removed"
	MsgOpenSidePanel          MessageType = "open_side_panel"
	MsgCloseOverlay           MessageType = "close_overlay"
	MsgConsent                MessageType = "consent"
	MsgCreateReport           MessageType = "create_report"
)

// Message is implemented by every validated inbound payload
type Message interface {
	Type() MessageType
}

// SupabaseRequest is an observed outbound request to the database host
type SupabaseRequest struct {
	TabID  int    `json:"tabId"`
	URL    string `json:"url"`
	APIKey string `json:"apiKey"`
	Schema string `json:"schema,omitempty"`
}

// AssetBody carries the text of a fetched static asset
type AssetBody struct {
	TabID    int    `json:"tabId"`
	AssetURL string `json:"assetUrl"`
	PageURL  string `json:"pageUrl,omitempty"`
	Body     string `json:"body"`
	Base64   bool   `json:"base64,omitempty"`
}

// RegisterAssetDetection records an asset detection found elsewhere
type RegisterAssetDetection struct {
	Detection AssetDetection `json:"detection"`
}

// RegisterLeak records a leak detection found elsewhere
type RegisterLeak struct {
	Detection LeakDetection `json:"detection"`
}

// ApplyConnection sets the active connection explicitly
type ApplyConnection struct {
	TabID      int              `json:"tabId,omitempty"`
	Source     ConnectionSource `json:"source,omitempty"`
	Connection Connection       `json:"connection"`
}

// TabUpdated signals a navigation in a tab
type TabUpdated struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

// TabRemoved signals a closed tab
type TabRemoved struct {
	TabID int `json:"tabId"`
}

// OpenSidePanel asks for the report panel to be shown
type OpenSidePanel struct {
	TabID int  `json:"tabId"`
	Force bool `json:"force,omitempty"`
}

// CloseOverlay asks for the detection indicator to be hidden
type CloseOverlay struct {
	TabID int `json:"tabId,omitempty"`
}

// Consent accepts or withdraws the terms
type Consent struct {
	Accepted bool   `json:"accepted"`
	Version  string `json:"version"`
}

// CreateReport requests a new security report
type CreateReport struct {
	ProjectID      string   `json:"projectId,omitempty"`
	Host           string   `json:"host,omitempty"`
	DomainOverride string   `json:"domainOverride,omitempty"`
	Tables         []string `json:"tables,omitempty"`
}

func (SupabaseRequest) Type() MessageType        { return MsgSupabaseRequest }
func (AssetBody) Type() MessageType              { return MsgAssetBody }
func (RegisterAssetDetection) Type() MessageType { return MsgRegisterAssetDetection }
func (RegisterLeak) Type() MessageType           { return MsgRegisterLeak }
func (ApplyConnection) Type() MessageType        { return MsgApplyConnection }
func (TabUpdated) Type() MessageType             { return MsgTabUpdated }
func (TabRemoved) Type() MessageType             { return MsgTabRemoved }
func (OpenSidePanel) Type() MessageType          { return MsgOpenSidePanel }
func (CloseOverlay) Type() MessageType           { return MsgCloseOverlay }
func (Consent) Type() MessageType                { return MsgConsent }
func (CreateReport) Type() MessageType           { return MsgCreateReport }

// Response is returned for every inbound message
type Response struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	ID     string `json:"id,omitempty"`
	Data   any    `json:"data,omitempty"`
}
