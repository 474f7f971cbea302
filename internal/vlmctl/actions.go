package vlmctl

// Indirection layer to allow stubbing in tests

var (
	fnHealth   = runHealth
	fnModels   = runModels
	fnChat     = runChat
	fnDescribe = runDescribe
)
