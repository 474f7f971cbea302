package main

// General API documentation for swaggo.
// Regenerate with: swag init -g cmd/vlmd/docs.go -o docs
//
// @title           vlmd API
// @version         2.2.0
// @description     OpenAI-compatible HTTP gateway for a local vision-language
// @description     model. Accepts text, images and videos; videos are frame
// @description     sampled before inference.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @securityDefinitions.apikey ApiKeyAuth
// @in   header
// @name Authorization
//
// @schemes http
