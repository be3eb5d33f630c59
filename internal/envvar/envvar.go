package envvar

const (
	// SpeakpaintEnv is the environment variable used to determine the environment
	SpeakpaintEnv = "SPEAKPAINT_ENV"

	// SpeakpaintServerHTTPPort is the environment variable used to determine the HTTP port
	SpeakpaintServerHTTPPort = "SPEAKPAINT_SERVER_HTTP_PORT"

	// SpeakpaintServerGRPCPort is the environment variable used to determine the gRPC port
	SpeakpaintServerGRPCPort = "SPEAKPAINT_SERVER_GRPC_PORT"

	// SpeakpaintModelsPath overrides the directory models are downloaded into
	SpeakpaintModelsPath = "SPEAKPAINT_MODELS_PATH"

	// SpeakpaintGeneratedDir overrides the directory generated images are written to
	SpeakpaintGeneratedDir = "SPEAKPAINT_GENERATED_DIR"

	// SpeakpaintDevice forces the execution device ("auto", "cpu" or "cuda")
	SpeakpaintDevice = "SPEAKPAINT_DEVICE"

	// HuggingFaceToken is read when a Hugging Face source has no explicit token
	HuggingFaceToken = "HF_TOKEN"
)
