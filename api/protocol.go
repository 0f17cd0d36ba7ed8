package api

const (
	jsonBodyMaxSize     = 64 * 1024 // 64 KiB
	idempotencyKeyLimit = 128

	headerIdempotencyKey = "Idempotency-Key"
)

type errorResponse struct {
	Error string `json:"error"`
}

type meResponse struct {
	ID string `json:"id"`
}

// PUT /api/notes/:weekId request body
type noteRequest struct {
	Content string `json:"content"`
}

// POST /api/week-settings/:weekId/image request body
type imageRequest struct {
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
}

type imageResponse struct {
	URL string `json:"url"`
}
