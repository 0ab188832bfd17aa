// Package tasks 定义了文档摄取任务及其 Kafka 队列。
package tasks

// IngestTask represents the data structure for a document ingestion job.
type IngestTask struct {
	DocumentID uint   `json:"document_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	CatalogID  string `json:"catalog_id"`
	// Reindex 为 true 时先清除既有分块再重建。
	Reindex bool `json:"reindex"`
}
