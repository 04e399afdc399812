package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// JobPosting 岗位信息表
type JobPosting struct {
	JobID              string         `gorm:"type:char(36);primaryKey"`
	Title              string         `gorm:"type:varchar(255);not null"`
	Description        string         `gorm:"type:text"`
	MinYearsExperience int            `gorm:"not null;default:0"`
	SkillsKeywordsJSON datatypes.JSON `gorm:"type:json"` // 冗余的技能关键词快照，便于审计
	Status             string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_job_postings_status"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobPosting) TableName() string {
	return "job_postings"
}

// SkillsKeywords 解码岗位行上的技能关键词快照。
// 内容缺失或损坏时返回nil，由调用方继续回退。
func (j *JobPosting) SkillsKeywords() []string {
	if len(j.SkillsKeywordsJSON) == 0 {
		return nil
	}
	var keywords []string
	if err := json.Unmarshal(j.SkillsKeywordsJSON, &keywords); err != nil {
		return nil
	}
	return keywords
}

// JobSkill 岗位的结构化技能要求（每行一个技能标签）
type JobSkill struct {
	JobSkillID uint64 `gorm:"primaryKey;autoIncrement"`
	JobID      string `gorm:"type:char(36);not null;index:idx_job_skills_job_id;uniqueIndex:idx_job_skills_job_skill,priority:1"`
	SkillName  string `gorm:"type:varchar(100);not null;uniqueIndex:idx_job_skills_job_skill,priority:2"`
	// Ordinal 保留技能在岗位要求中的出现顺序
	Ordinal int `gorm:"not null;default:0"`

	JobPosting *JobPosting `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (JobSkill) TableName() string {
	return "job_skills"
}

// Candidate 候选人主表
type Candidate struct {
	CandidateID string    `gorm:"type:char(36);primaryKey"`
	FullName    string    `gorm:"type:varchar(255)"`
	Email       string    `gorm:"type:varchar(255);uniqueIndex:idx_candidates_email_unique"`
	CreatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// Resume 候选人简历表，每个候选人至多一份生效简历
type Resume struct {
	ResumeID    string    `gorm:"type:char(36);primaryKey"`
	CandidateID string    `gorm:"type:char(36);not null;uniqueIndex:idx_resumes_candidate_unique"`
	AboutMe     string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate       *Candidate       `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Skills          []ResumeSkill    `gorm:"foreignKey:ResumeID;references:ResumeID"`
	WorkExperiences []WorkExperience `gorm:"foreignKey:ResumeID;references:ResumeID"`
}

func (Resume) TableName() string {
	return "resumes"
}

// ResumeSkill 简历技能表
type ResumeSkill struct {
	ResumeSkillID uint64 `gorm:"primaryKey;autoIncrement"`
	ResumeID      string `gorm:"type:char(36);not null;index:idx_resume_skills_resume_id"`
	SkillName     string `gorm:"type:varchar(100);not null"`
}

func (ResumeSkill) TableName() string {
	return "resume_skills"
}

// WorkExperience 工作经历表。起止日期允许为空，缺少任一端的经历不计入总年限。
type WorkExperience struct {
	WorkExperienceID uint64     `gorm:"primaryKey;autoIncrement"`
	ResumeID         string     `gorm:"type:char(36);not null;index:idx_work_experiences_resume_id"`
	CompanyName      string     `gorm:"type:varchar(255)"`
	JobTitle         string     `gorm:"type:varchar(255)"`
	StartDate        *time.Time `gorm:"type:date"`
	EndDate          *time.Time `gorm:"type:date"`
}

func (WorkExperience) TableName() string {
	return "work_experiences"
}
