package controllers

import (
	"net/http"

	"github.com/cipulse/backend/internal/services"
	"github.com/gin-gonic/gin"
)

type JobController struct {
	jenkins *services.JenkinsService
	cache   *services.JobCache
}

func NewJobController(jenkins *services.JenkinsService, cache *services.JobCache) *JobController {
	return &JobController{jenkins: jenkins, cache: cache}
}

// GetJobs returns the cached CI job snapshots. An unreachable CI server
// yields an empty list, not an error.
func (jc *JobController) GetJobs(c *gin.Context) {
	c.JSON(http.StatusOK, jc.cache.Get())
}

// TriggerBuild starts a new build of the named job upstream.
func (jc *JobController) TriggerBuild(c *gin.Context) {
	job := c.Param("job")
	if err := jc.jenkins.TriggerBuild(job); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "triggered": true})
}

// GetAPICalls returns the recorded CI server request history.
func (jc *JobController) GetAPICalls(c *gin.Context) {
	c.JSON(http.StatusOK, jc.jenkins.GetAPICalls())
}

// ClearAPICalls drops the recorded CI server request history.
func (jc *JobController) ClearAPICalls(c *gin.Context) {
	jc.jenkins.ClearAPICalls()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
