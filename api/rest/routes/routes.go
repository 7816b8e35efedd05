package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"dataset-platform/api/rest/handlers"
	"dataset-platform/core/auth"
	"dataset-platform/core/batches"
	"dataset-platform/core/export"
	"dataset-platform/core/qc"
	"dataset-platform/core/repository"
	"dataset-platform/core/tasks"
	"dataset-platform/core/uploads"
)

// Services bundles everything the HTTP surface depends on.
type Services struct {
	Users   repository.Users
	Tokens  *auth.TokenManager
	Batches *batches.Service
	Uploads *uploads.Service
	QC      *qc.Service
	Tasks   *tasks.Service
	Exports *export.Builder
}

// SetupRoutes configures all API routes.
func SetupRoutes(r *mux.Router, s Services) {
	authHandler := handlers.NewAuthHandler(s.Users, s.Tokens)
	batchHandler := handlers.NewBatchHandler(s.Batches)
	uploadHandler := handlers.NewUploadHandler(s.Uploads)
	qcHandler := handlers.NewQCHandler(s.QC)
	taskHandler := handlers.NewTaskHandler(s.Tasks)
	exportHandler := handlers.NewExportHandler(s.Exports)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(handlers.AuthMiddleware(s.Tokens, s.Users))

	// Batch endpoints
	api.HandleFunc("/batches", batchHandler.CreateBatch).Methods("POST")
	api.HandleFunc("/batches", batchHandler.ListBatches).Methods("GET")
	api.HandleFunc("/batches/{id}", batchHandler.GetBatch).Methods("GET")

	// Upload endpoints
	api.HandleFunc("/batches/{id}/uploads", uploadHandler.PresignUpload).Methods("POST")
	api.HandleFunc("/batches/{id}/uploads/confirm", uploadHandler.ConfirmUpload).Methods("POST")
	api.HandleFunc("/batches/{id}/assets", uploadHandler.ListAssets).Methods("GET")
	api.HandleFunc("/assets/{id}/content", uploadHandler.AssetContent).Methods("GET")

	// QC endpoints
	api.HandleFunc("/batches/{id}/qc", qcHandler.SubmitQC).Methods("POST")
	api.HandleFunc("/batches/{id}/qc", qcHandler.GetQCStatus).Methods("GET")
	api.HandleFunc("/batches/{id}/qc/results", qcHandler.GetQCResults).Methods("GET")

	// Task endpoints
	api.HandleFunc("/tasks", taskHandler.ListTasks).Methods("GET")
	api.HandleFunc("/tasks/{id}", taskHandler.GetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/progress", taskHandler.GetTaskProgress).Methods("GET")
	api.HandleFunc("/tasks/{id}/assets/{asset_id}/labels", taskHandler.SaveLabels).Methods("PUT")
	api.HandleFunc("/tasks/{id}/complete", taskHandler.CompleteTask).Methods("POST")

	// Export endpoints
	api.HandleFunc("/batches/{id}/export", exportHandler.BuildExport).Methods("POST")
	api.HandleFunc("/batches/{id}/export", exportHandler.GetExportStatus).Methods("GET")
	api.HandleFunc("/batches/{id}/export/download", exportHandler.DownloadExport).Methods("GET")
}
