package model

import "time"

// File 上传的执照文件元数据，内容单独存放在 file_contents
type File struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID      *int64    `json:"order_id" gorm:"index"`
	Filename     string    `json:"filename" gorm:"type:varchar(255);not null"`
	OriginalName string    `json:"original_name" gorm:"type:varchar(255);not null"`
	ContentType  string    `json:"content_type" gorm:"type:varchar(100);not null"`
	Size         int64     `json:"size" gorm:"not null"`
	UploadedAt   time.Time `json:"uploaded_at" gorm:"index;not null"`
}

func (File) TableName() string { return "order_files" }

// FileContent 文件二进制内容，按文件 ID 读取
type FileContent struct {
	FileID string `gorm:"primaryKey;type:varchar(36)"`
	Data   []byte `gorm:"not null"`
}

func (FileContent) TableName() string { return "file_contents" }
