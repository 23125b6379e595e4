package reportimport

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var allowedExtensions = map[string]string{
	".csv":  "text/csv",
	".txt":  "text/plain",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

type createImportForm struct {
	Distributor    string `form:"distributor" validate:"required"`
	ReportingMonth string `form:"reporting_month"`
}

// publishJob is swapped in tests.
var publishJob = PublishImportJob

// CreateImportHandler accepts a multipart upload (file, distributor, reporting_month),
// stores the report and queues an import job.
func CreateImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var form createImportForm
		if err := c.ShouldBind(&form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		distributor, err := models.ParseDistributor(form.Distributor)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		month := ""
		if strings.TrimSpace(form.ReportingMonth) != "" {
			month, err = NormalizeMonth(form.ReportingMonth)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "reporting_month must be YYYYMM"})
				return
			}
		}

		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		ext := strings.ToLower(filepath.Ext(file.Filename))
		contentType, ok := allowedExtensions[ext]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported file type %q", ext)})
			return
		}

		ctx := c.Request.Context()
		job := models.ReportImportJob{
			ID:             uuid.NewString(),
			Distributor:    distributor,
			ReportingMonth: month,
			Status:         models.ImportStatusQueued,
		}

		if utils.GetStorageProvider() == utils.StorageProviderGCS {
			job.ObjectKey = fmt.Sprintf("report-imports/%s%s", job.ID, ext)
			src, err := file.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			err = utils.UploadReaderToGCS(ctx, job.ObjectKey, src, contentType)
			_ = src.Close()
			if err != nil {
				config.LogError(config.GetLogger(), "reportimport", "CreateImportHandler", "upload report", job.ObjectKey, err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "could not store report"})
				return
			}
		} else {
			dir := config.ReportImportUploadDir()
			if err := os.MkdirAll(dir, 0o755); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			job.FilePath = filepath.Join(dir, job.ID+ext)
			if err := c.SaveUploadedFile(file, job.FilePath); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		if err := models.CreateReportImportJob(ctx, &job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := publishJob(ctx, job.ID); err != nil {
			config.LogError(config.GetLogger(), "reportimport", "CreateImportHandler", "publish import job", job.ID, err)
			_ = models.UpdateReportImportJob(ctx, job.ID, map[string]interface{}{"status": models.ImportStatusFailed})
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not queue import", "id": job.ID})
			return
		}

		c.JSON(http.StatusAccepted, job)
	}
}

// GetImportHandler returns the job row with its progress and counts.
func GetImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := models.GetReportImportJob(c.Request.Context(), c.Param("id"))
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "import not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// ListUnlinkedReportsHandler pages unlinked reports, pending ones by default.
func ListUnlinkedReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.UnlinkedReportFilter{
			Status:         c.DefaultQuery("status", models.UnlinkedStatusPending),
			ReportingMonth: c.Query("reporting_month"),
			LabelName:      c.Query("label_name"),
		}
		if d := c.Query("distributor"); d != "" {
			distributor, err := models.ParseDistributor(d)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			filter.Distributor = distributor
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}

		reports, page, err := models.ListUnlinkedReports(c.Request.Context(), filter, c.Query("after"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": reports, "page_info": page})
	}
}

func GetUnlinkedReportDetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		details, err := models.GetUnlinkedReportDetails(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": details})
	}
}

// RegisterRoutes mounts the import endpoints on r.
func RegisterRoutes(r gin.IRouter, im *Importer) {
	r.POST("/api/report-imports", CreateImportHandler())
	r.GET("/api/report-imports/:id", GetImportHandler())
	r.GET("/api/unlinked-reports", ListUnlinkedReportsHandler())
	r.GET("/api/unlinked-reports/:id/details", GetUnlinkedReportDetailsHandler())
	r.POST("/pubsub/report-import", PubSubPushHandler(im))
}
