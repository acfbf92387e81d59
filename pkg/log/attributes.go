package log

// Standard attribute keys. Keys are dotted so log queries can filter on a
// prefix ("ml.", "data.", "basis.").

// Model and operation context.
const (
	// ModelNameKey identifies the model type, e.g. "GLM".
	ModelNameKey = "model.name"

	// RunIDKey identifies a single Fit/FitStream call. See NewRunID.
	RunIDKey = "run.id"

	// OperationKey is one of the Operation* constants below.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey is one of the Phase* constants below.
	PhaseKey = "ml.phase"

	// SolverKey is the solver name, e.g. "LBFGS".
	SolverKey = "ml.solver"

	// RegularizerKey is the regularizer name, e.g. "Ridge".
	RegularizerKey = "ml.regularizer"

	// ObservationKey is the observation model, e.g. "Poisson".
	ObservationKey = "ml.observation"
)

// Data shape.
const (
	SamplesKey   = "data.samples"
	FeaturesKey  = "data.features"
	BatchSizeKey = "data.batch_size"
	// InvalidFractionKey is the share of samples that were replaced by NaN.
	InvalidFractionKey = "data.invalid_fraction"
)

// Basis context.
const (
	BasisLabelKey = "basis.label"
	BasisSizeKey  = "basis.n_basis_funcs"
	BasisModeKey  = "basis.mode"
)

// Training and performance.
const (
	DurationMsKey     = "perf.duration_ms"
	LossKey           = "metrics.loss"
	ScoreKey          = "metrics.score"
	GradNormKey       = "metrics.grad_norm"
	IterationKey      = "training.iteration"
	StatusKey         = "training.status"
	RegularizationKey = "hyperparams.regularizer_strength"
	RandomSeedKey     = "config.random_seed"
	FoldKey           = "cv.fold"
	CandidateKey      = "cv.candidate"
)

// Error context.
const (
	ErrorCodeKey = "error.code"
	ErrorTypeKey = "error.type"
)

// Attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationScore        = "score"
	OperationSimulate     = "simulate"
	OperationUpdate       = "update"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationEvaluate     = "evaluate"
	OperationStream       = "fit_stream"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorConfiguration     = "CONFIGURATION"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
)
