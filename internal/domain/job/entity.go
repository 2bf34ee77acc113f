package job

import "time"

// Upload tracks the stored input archive and where the result ended up.
type Upload struct {
	JobID      string    `gorm:"column:job_id;primaryKey;size:36" json:"job_id"`
	Username   string    `gorm:"column:username;index;not null" json:"username"`
	FilePath   string    `gorm:"column:file_path;not null" json:"-"`
	Config     string    `gorm:"column:config;not null" json:"config"`
	Status     Status    `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	ResultPath *string   `gorm:"column:result_path" json:"-"`
}

func (Upload) TableName() string { return "uploads" }

// InferenceJob tracks execution metadata for the same job id.
type InferenceJob struct {
	JobID        string    `gorm:"column:job_id;primaryKey;size:36" json:"job_id"`
	Username     string    `gorm:"column:username;index;not null" json:"username"`
	Config       string    `gorm:"column:config;not null" json:"config"`
	Status       Status    `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	ErrorMessage *string   `gorm:"column:error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (InferenceJob) TableName() string { return "inference_jobs" }

// Record is the pair of rows that make up one job.
type Record struct {
	Upload    Upload
	Inference InferenceJob
}

func (r *Record) JobID() string { return r.Upload.JobID }
func (r *Record) Owner() string { return r.Upload.Username }
func (r *Record) Status() Status { return r.Upload.Status }
func (r *Record) Config() string { return r.Upload.Config }
func (r *Record) InputPath() string { return r.Upload.FilePath }

func (r *Record) ResultPath() string {
	if r.Upload.ResultPath == nil {
		return ""
	}
	return *r.Upload.ResultPath
}

func (r *Record) ErrorMessage() string {
	if r.Inference.ErrorMessage == nil {
		return ""
	}
	return *r.Inference.ErrorMessage
}

// Extra carries the data a terminal transition attaches.
type Extra struct {
	ResultPath   string
	ErrorMessage string
}
