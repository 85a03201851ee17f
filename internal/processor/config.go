package processor

type Config struct {
	// OutputPath is where completed artifacts are written; the artifact
	// server serves and deletes files from this directory only.
	OutputPath string `yaml:"output_dir" env:"OUTPUT_DIR" env-default:"./processed"`

	// WorkingPath holds the per-job scratch directories. Each job works
	// inside its own subdirectory, which is removed when the job ends.
	WorkingPath string `yaml:"working_dir" env:"WORKING_DIR" env-default:"./temp"`

	// JobParallelism is the number of pool workers executing jobs.
	JobParallelism int `yaml:"job_parallelism" env:"JOB_PARALLELISM" env-default:"4"`
}
