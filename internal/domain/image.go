package domain

// DatasetImage: файл изображения, готовый к записи в датасет товара.
type DatasetImage struct {
	Name string // original_0.jpg, crop_0_1.jpg
	Data []byte
}

func NewDatasetImage(name string, data []byte) DatasetImage {
	return DatasetImage{
		Name: name,
		Data: data,
	}
}

// Object описывает файл, который хранится в S3
type Object struct {
	Bucket      string
	ObjectKey   string
	Data        []byte
	ContentType string
}

func NewObject(bucket, objectKey string, data []byte, contentType string) *Object {
	return &Object{
		Bucket:      bucket,
		ObjectKey:   objectKey,
		Data:        data,
		ContentType: contentType,
	}
}
