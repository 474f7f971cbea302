package engine

// LlamaBuilt reports whether this binary carries the in-process llama backend.
func LlamaBuilt() bool { return llamaBuilt }
