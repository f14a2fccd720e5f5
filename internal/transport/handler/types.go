package handler

type UploadImageParams struct {
	Folder string `validate:"required,oneof=recipes users steps"`
}

type thumbnailQuery struct {
	Width   int `validate:"gte=1"`
	Height  int `validate:"gte=1"`
	Quality int `validate:"gte=1,lte=100"`
}
