package ir

// Version constants for the scene IR and engine.
const (
	// IRVersion is the SceneSpec schema version.
	IRVersion = "1"

	// EngineVersion is the x3drouter engine version.
	EngineVersion = "0.1.0"
)
