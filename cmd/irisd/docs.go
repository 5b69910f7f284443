package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           irisd API
// @version         1.0
// @description     HTTP API for local LLM session management, streaming generation and embeddings.
//
// @contact.name   irisd maintainers
// @contact.url    https://github.com/your-org/irisd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
