package commands

// CommandType is the closed set of commands the agent understands.
type CommandType string

const (
	UpdateConfig      CommandType = "UpdateConfig"
	ChangeModel       CommandType = "ChangeModel"
	UploadModel       CommandType = "UploadModel"
	DeleteModel       CommandType = "DeleteModel"
	UploadModelToLib  CommandType = "UploadModelToLib"
	GetLogFileContent CommandType = "GetLogFileContent"
)

// modelRequest is the JSON payload of the model commands. Keys follow the
// controller's casing.
type modelRequest struct {
	ModelName     string `json:"ModelName"`
	DownloadURL   string `json:"DownloadUrl"`
	ApplyOnUpload bool   `json:"ApplyOnUpload"`
	UploadURL     string `json:"UploadUrl"`
}

type logFileRequest struct {
	FilePath string `json:"FilePath"`
}

type logFileContent struct {
	Success  bool   `json:"success"`
	Content  string `json:"content"`
	Size     int    `json:"size"`
	Encoding string `json:"encoding"`
}

type logFileFailure struct {
	Success bool   `json:"success"`
	Size    int    `json:"size"`
	Error   string `json:"error"`
}
