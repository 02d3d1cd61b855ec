package jobsearch

import (
	"fmt"
	"strings"
	"time"

	"jobportal/internal/util"
)

// Job is an external posting in the shape the portal returns to clients.
type Job struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	CompanyName    string  `json:"companyName"`
	CompanyLogo    *string `json:"companyLogo"`
	Location       string  `json:"location"`
	Salary         string  `json:"salary"`
	Description    string  `json:"description"`
	ApplyLink      string  `json:"applyLink"`
	PostedDate     string  `json:"postedDate"`
	EmploymentType string  `json:"employmentType"`
	SkillsRequired string  `json:"skillsRequired"`
	IsExternal     bool    `json:"isExternal"`
}

// Company is a company profile assembled from its postings.
type Company struct {
	Name         string  `json:"name"`
	Logo         *string `json:"logo"`
	Website      *string `json:"website"`
	Description  string  `json:"description"`
	Headquarters string  `json:"headquarters"`
	Jobs         []Job   `json:"jobs"`
}

// rawJob is the provider's posting format; the embedded fallback data uses it too.
type rawJob struct {
	JobID          string   `json:"job_id"`
	Title          string   `json:"job_title"`
	EmployerName   string   `json:"employer_name"`
	EmployerLogo   string   `json:"employer_logo"`
	EmployerSite   string   `json:"employer_website"`
	EmployerType   string   `json:"employer_company_type"`
	City           string   `json:"job_city"`
	Country        string   `json:"job_country"`
	Salary         string   `json:"job_salary"`
	MinSalary      float64  `json:"job_min_salary"`
	MaxSalary      float64  `json:"job_max_salary"`
	Description    string   `json:"job_description"`
	ApplyLink      string   `json:"job_apply_link"`
	GoogleLink     string   `json:"job_google_link"`
	PostedAt       string   `json:"job_posted_at_datetime_utc"`
	EmploymentType string   `json:"job_employment_type"`
	RequiredSkills []string `json:"job_required_skills"`
}

func (r rawJob) location() string {
	switch {
	case r.City != "" && r.Country != "":
		return r.City + ", " + r.Country
	case r.Country != "":
		return r.Country
	default:
		return r.City
	}
}

func normalize(r rawJob, now time.Time) Job {
	j := Job{
		ID:             r.JobID,
		Title:          orDefault(r.Title, "Untitled Position"),
		CompanyName:    orDefault(r.EmployerName, "Unknown Company"),
		Location:       orDefault(r.location(), "Remote"),
		Salary:         salary(r),
		Description:    orDefault(r.Description, "No description available"),
		ApplyLink:      orDefault(r.ApplyLink, orDefault(r.GoogleLink, "#")),
		PostedDate:     orDefault(r.PostedAt, now.UTC().Format(time.RFC3339)),
		EmploymentType: orDefault(r.EmploymentType, "Full-time"),
		SkillsRequired: strings.Join(r.RequiredSkills, ", "),
		IsExternal:     true,
	}
	if j.ID == "" {
		j.ID = "external-" + util.NewID()
	}
	if r.EmployerLogo != "" {
		logo := r.EmployerLogo
		j.CompanyLogo = &logo
	}
	return j
}

// salary prefers the provider's text, then a min-max range in lakh rupees.
func salary(r rawJob) string {
	if s := strings.TrimSpace(r.Salary); s != "" {
		return s
	}
	if r.MinSalary > 0 && r.MaxSalary > 0 {
		return fmt.Sprintf("₹%.1fL - ₹%.1fL", r.MinSalary/100000, r.MaxSalary/100000)
	}
	return "Competitive Salary"
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
