package main

import (
	"context"
	"fmt"

	"github.com/trezcool/ufaulu/core/attainment"
)

// recompute recalculates a course's CO attainment and persists the snapshots.
func (cli *commandLine) recompute(courseID, academicYear string) error {
	res, err := cli.attSvc.Calculate(
		context.Background(), courseID,
		attainment.Options{AcademicYear: academicYear},
		true, /* save */
	)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s): %d COs, %d students, average attainment %.2f%%\n",
		res.CourseName, res.CourseCode,
		res.Summary.TotalCOs, res.Summary.TotalStudents, res.Summary.AverageAttainment)
	for _, co := range res.COAttainments {
		fmt.Printf("  %-6s level %d  %6.2f%% of class met the %.0f%% target (%d/%d)\n",
			co.COCode, co.AttainmentLevel, co.PercentageMeetingTarget,
			co.TargetPercentage, co.StudentsMeetingTarget, co.TotalStudents)
	}
	return nil
}
