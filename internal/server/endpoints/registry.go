package endpoints

import (
	"github.com/jackzampolin/distill/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},

		// Book endpoints
		&UploadStreamEndpoint{},
		&ProcessBookEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&GetOutputEndpoint{},
		&ExportEpubEndpoint{},
		&DeleteBookEndpoint{},
	}
}

// BookCommands groups book-related commands under a "books" subcommand.
func BookCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&GetOutputEndpoint{},
		&ProcessBookEndpoint{},
		&ExportEpubEndpoint{},
		&DeleteBookEndpoint{},
	}
}
