package api

import (
    "fmt"

    "mealroutes/internal/model"
    "mealroutes/internal/routing"
)

func validateDay(day string) (string, error) {
    if day == "" {
        return "", fmt.Errorf("day is required")
    }
    d, ok := routing.NormalizeDay(day)
    if !ok {
        return "", fmt.Errorf("invalid day: %s", day)
    }
    return d, nil
}

func validateGenerateRequest(req *model.GenerateRequest) error {
    d, err := validateDay(req.Day)
    if err != nil {
        return err
    }
    req.Day = d
    if req.DriverCount < 1 || req.DriverCount > 50 {
        return fmt.Errorf("driverCount must be between 1 and 50")
    }
    return nil
}

func validateReorganizeRequest(req *model.ReorganizeRequest) error {
    d, err := validateDay(req.Day)
    if err != nil {
        return err
    }
    req.Day = d
    if req.Improve != "" && req.Improve != "2opt" {
        return fmt.Errorf("invalid improve: %s", req.Improve)
    }
    return nil
}
