package config

// StorageConfig selects the blob backend used for async extraction.
type StorageConfig struct {
	// Type is "minio" or "s3".
	Type  string      `yaml:"type"`
	Minio MinioConfig `yaml:"minio"`
	S3    S3Config    `yaml:"s3"`
}

type MinioConfig struct {
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"useSSL"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucketName"`
}

type S3Config struct {
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
}
