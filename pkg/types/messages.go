package types

// WhitelistEntry is one element of the GET /get_whitelist response.
type WhitelistEntry struct {
	Token       string `json:"token"`
	Price       string `json:"price"`
	Coefficient uint64 `json:"coefficient"`
	Decimals    uint8  `json:"decimals"`
}

// SignatureResponse is the POST /get_signature response body.
// Nonce and amount are decimal strings so that 128-bit values survive JSON consumers.
type SignatureResponse struct {
	Nonce      string `json:"nonce"`
	UsdfAmount string `json:"usdf_amount"`
	Signature  string `json:"signature"` // hex, no 0x prefix
}

// PublicKeyResponse is the GET /public_key response body.
type PublicKeyResponse struct {
	PublicKey string `json:"public_key"` // base58
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorBody with the id of the request that failed.
type ErrorResponse struct {
	RequestID string    `json:"request_id"`
	Error     ErrorBody `json:"error"`
}
