package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the task and batch endpoints under /api.
func RegisterRoutes(r chi.Router, tasks *TaskHandler, batches *BatchHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/task", func(r chi.Router) {
			r.Get("/get", tasks.ListTasks)
			r.Post("/create", tasks.CreateTask)
			r.Post("/upload", tasks.UploadTasks)
			r.Get("/batches/{batch_id}", tasks.GetBatchStatus)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tasks.GetTask)
				r.Delete("/", tasks.DeleteTask)
				r.Post("/cancel", tasks.CancelTask)
				r.Delete("/file", tasks.DetachFile)
				r.Get("/status", tasks.CheckStatus)
				r.Get("/result", tasks.GetTaskResult)
			})
		})

		r.Route("/batch", func(r chi.Router) {
			r.Get("/list", batches.ListBatches)
			r.Get("/batches/{id}", batches.GetBatch)
			r.Delete("/batches/{id}", batches.CancelBatch)
			r.Get("/files", batches.ListFiles)
			r.Delete("/files/{id}", batches.DeleteFile)
			r.Get("/files/{id}/download", batches.DownloadFile)
		})
	})
}
