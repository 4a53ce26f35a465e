package port

type TextExtractor interface {
	Extract(content []byte, fileType string) (string, error)
}
